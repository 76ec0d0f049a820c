package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/SAP/go-hdb/driver"
	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"sql-runner/internal/dsn"
)

const pingTimeout = 15 * time.Second

var ErrUnsupportedDialect = errors.New("unsupported dialect")

type dialect struct {
	driverName  string
	defaultPort int
	// statistics is true when the backend emits SET STATISTICS notices.
	statistics bool
	connString func(p dsn.ConnectionParameters, port int) string
}

var dialects = map[string]dialect{
	"mssql": {
		driverName:  "sqlserver",
		defaultPort: 1433,
		statistics:  true,
		connString: func(p dsn.ConnectionParameters, port int) string {
			u := &url.URL{
				Scheme: "sqlserver",
				User:   url.UserPassword(p.User, p.Password),
				Host:   hostPort(p.Host, port),
			}
			q := url.Values{}
			q.Set("database", p.Database)
			u.RawQuery = q.Encode()
			return u.String()
		},
	},
	"hana": {
		driverName:  "hdb",
		defaultPort: 39017,
		connString: func(p dsn.ConnectionParameters, port int) string {
			u := &url.URL{
				Scheme: "hdb",
				User:   url.UserPassword(p.User, p.Password),
				Host:   hostPort(p.Host, port),
			}
			q := url.Values{}
			q.Set("databaseName", p.Database)
			u.RawQuery = q.Encode()
			return u.String()
		},
	},
	"postgresql": {
		driverName:  "postgres",
		defaultPort: 5432,
		connString: func(p dsn.ConnectionParameters, port int) string {
			u := &url.URL{
				Scheme: "postgres",
				User:   url.UserPassword(p.User, p.Password),
				Host:   hostPort(p.Host, port),
				Path:   "/" + p.Database,
			}
			return u.String()
		},
	},
	"mysql": {
		driverName:  "mysql",
		defaultPort: 3306,
		connString: func(p dsn.ConnectionParameters, port int) string {
			cfg := mysql.NewConfig()
			cfg.User = p.User
			cfg.Passwd = p.Password
			cfg.Net = "tcp"
			cfg.Addr = hostPort(p.Host, port)
			cfg.DBName = p.Database
			cfg.ParseTime = true
			return cfg.FormatDSN()
		},
	},
}

func init() {
	dialects["postgres"] = dialects["postgresql"]
	dialects["sqlserver"] = dialects["mssql"]
}

type Db struct {
	*sql.DB
	Dialect string
}

// SupportsStatistics reports whether the backend can emit the diagnostic
// messages parsed by the mssqlstats package.
func (db *Db) SupportsStatistics() bool {
	d, ok := dialects[db.Dialect]
	return ok && d.statistics
}

// ConnString resolves the driver name and driver-specific connection string
// for p. An implicit port is replaced with the dialect's default.
func ConnString(p dsn.ConnectionParameters) (string, string, error) {
	d, ok := dialects[p.Dialect]
	if !ok {
		return "", "", fmt.Errorf("%w %q", ErrUnsupportedDialect, p.Dialect)
	}
	port := p.Port
	if !p.PortExplicit {
		port = d.defaultPort
	}
	return d.driverName, d.connString(p, port), nil
}

func NewConnection(ctx context.Context, p dsn.ConnectionParameters) (*Db, error) {
	driverName, connString, err := ConnString(p)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, connString)
	if err != nil {
		return nil, err
	}

	// A run executes one query on one pinned connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s: %w", p, err)
	}

	return &Db{DB: db, Dialect: p.Dialect}, nil
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
