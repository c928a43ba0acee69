package config

import (
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// Default development configuration. Deployments overwrite this file (or
// assign over Config at startup) with real values.
var Config = QFConfig{
	Env:      Dev,
	BaseUrl:  "http://localhost:9001",
	LogLevel: zerolog.TraceLevel,
	Postgres: PostgresConfig{
		User:     "postgres",
		Password: "password",
		Hostname: "localhost",
		Port:     5432,
		DbName:   "qf",
		LogLevel: tracelog.LogLevelWarn,
		MinConn:  2,
		MaxConn:  10,
	},
	Email: EmailConfig{
		ServerAddress:  "smtp.example.com",
		ServerPort:     587,
		FromAddress:    "noreply@quorum.forum",
		FromName:       "Quorum",
		PerSecondLimit: 5,
	},
}
