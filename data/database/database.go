// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the subset of pgxpool used by the data layer; it allows tests
// to substitute a mock connection
type PgxIface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Conn is a scoped database handle. Callers acquire one per unit of work and
// must Release it; no package-level singleton is kept.
type Conn struct {
	pool  PgxIface
	close func()
}

// Connect opens a connection pool using the database.url configuration key
func Connect(ctx context.Context) (*Conn, error) {
	pool, err := pgxpool.Connect(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to pool")
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		pool.Close()
		return nil, err
	}
	return &Conn{pool: pool, close: pool.Close}, nil
}

// NewConn wraps an existing pool (or mock) in a Conn
func NewConn(pool PgxIface) *Conn {
	return &Conn{pool: pool}
}

// Query runs a query against the pool
func (c *Conn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return c.pool.Query(ctx, sql, args...)
}

// Release closes the underlying pool
func (c *Conn) Release() {
	if c.close != nil {
		c.close()
		c.close = nil
	}
	c.pool = nil
}
