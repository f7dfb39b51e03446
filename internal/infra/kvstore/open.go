package kvstore

import (
	"context"
	"fmt"

	"github.com/allensfl/coachingspace-app-sub001/internal/port"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMongo  = "mongo"
)

// Options selects and configures a backend.
type Options struct {
	Driver        string
	SQLitePath    string
	RedisURL      string
	MongoURI      string
	MongoDatabase string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (port.KVStore, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		return OpenSQLite(opts.SQLitePath)
	case DriverRedis:
		return OpenRedis(ctx, opts.RedisURL)
	case DriverMongo:
		return OpenMongo(opts.MongoURI, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
