package config

// Config db config
type Config struct {
	// DBType mysql or memory
	DBType string
	// MysqlConnectionInfo dsn without parameters, e.g. user:pass@tcp(host:3306)/vaultbox
	MysqlConnectionInfo string
	// ShowSQL log every statement, debug only
	ShowSQL bool
}
