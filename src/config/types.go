package config

import (
	"fmt"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type QFConfig struct {
	Env      Environment
	BaseUrl  string
	LogLevel zerolog.Level
	Postgres PostgresConfig
	Email    EmailConfig
}

type PostgresConfig struct {
	User     string
	Password string
	Hostname string
	Port     int
	DbName   string
	LogLevel tracelog.LogLevel
	MinConn  int32
	MaxConn  int32
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

type EmailConfig struct {
	ServerAddress  string
	ServerPort     int
	FromAddress    string
	FromName       string
	MailerUsername string
	MailerPassword string

	// When set, all outgoing mail is redirected to this address. Used in
	// dev and beta so that real users never get test emails.
	ForceToAddress string

	// Upper bound on outgoing messages per second.
	PerSecondLimit float64
}
