package source

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLake_Source_Config_Validate(t *testing.T) {
	t.Parallel()

	t.Run("reports every missing credential", func(t *testing.T) {
		t.Parallel()

		cfg := Config{Host: "db.internal"}
		err := cfg.Validate()
		require.ErrorContains(t, err, "user is required")
		require.ErrorContains(t, err, "password is required")
		require.ErrorContains(t, err, "database is required")
		require.NotContains(t, err.Error(), "host is required")
	})

	t.Run("fills defaults", func(t *testing.T) {
		t.Parallel()

		cfg := Config{Host: "db.internal", User: "etl", Password: "secret", Database: "trucks"}
		require.NoError(t, cfg.Validate())
		require.Equal(t, DefaultPort, cfg.Port)
		require.Equal(t, "db.internal:3306", cfg.Addr())

		dsn := cfg.DSN()
		require.False(t, dsn.ParseTime)
		require.Equal(t, time.UTC, dsn.Loc)
		require.Equal(t, "trucks", dsn.DBName)
	})
}

func TestLake_Source_Connect(t *testing.T) {
	t.Parallel()

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()

		_, err := Connect(t.Context(), Config{})
		require.ErrorIs(t, err, ErrConnection)

		var connErr *ConnectionError
		require.True(t, errors.As(err, &connErr))
		require.Empty(t, connErr.Addr)
	})

	t.Run("unreachable store", func(t *testing.T) {
		t.Parallel()

		_, err := Connect(t.Context(), Config{
			Host:           "127.0.0.1",
			Port:           1,
			User:           "etl",
			Password:       "secret",
			Database:       "trucks",
			ConnectTimeout: time.Second,
		})
		require.ErrorIs(t, err, ErrConnection)
		require.ErrorContains(t, err, "source: connect 127.0.0.1:1")
	})
}
