package datastore

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/rxledger/rxledger/internal/conf"
)

const mysqlTimeout = "30s"

// mysqlDSN builds the DSN with mysql.Config so credentials are escaped.
func mysqlDSN(settings conf.MySQLSettings) string {
	cfg := mysql.Config{
		User:                 settings.Username,
		Passwd:               settings.Password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port)),
		DBName:               settings.Database,
		AllowNativePasswords: true,
		Params: map[string]string{
			"charset":      "utf8mb4",
			"parseTime":    "True",
			"loc":          "Local",
			"timeout":      mysqlTimeout,
			"readTimeout":  mysqlTimeout,
			"writeTimeout": mysqlTimeout,
		},
	}
	return cfg.FormatDSN()
}

func openMySQL(settings conf.MySQLSettings, gcfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(mysqlDSN(settings)), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get MySQL connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
