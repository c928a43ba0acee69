package ansicolor

import "runtime"

var Reset = "\033[0m"
var Bold = "\033[1m"
var Faint = "\033[2m"
var Underline = "\033[4m"

var Red = "\033[31m"
var Green = "\033[32m"
var Yellow = "\033[33m"
var Blue = "\033[34m"
var Cyan = "\033[36m"
var Gray = "\033[37m"
var White = "\033[97m"

var BgRed = "\033[41m"
var BgGreen = "\033[42m"
var BgYellow = "\033[43m"
var BgBlue = "\033[44m"

func init() {
	if runtime.GOOS == "windows" {
		Reset = ""
		Bold = ""
		Faint = ""
		Underline = ""
		Red = ""
		Green = ""
		Yellow = ""
		Blue = ""
		Cyan = ""
		Gray = ""
		White = ""
		BgRed = ""
		BgGreen = ""
		BgYellow = ""
		BgBlue = ""
	}
}
