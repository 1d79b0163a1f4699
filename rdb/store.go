// This file is part of ppn-node, a peer-to-peer node runtime in Golang.
// Copyright (C) 2019-2022 Bernd Fix  >Y<
//
// ppn-node is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// ppn-node is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package rdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	redis "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Error values for the key/value-store backends.
var (
	ErrStoreInvalidSpec  = errors.New("invalid rdb store specification")
	ErrStoreNotAvailable = errors.New("rdb store not available")
)

// KVStore is a string key/value store backing the replicated-database
// feature's peer records.
type KVStore interface {
	Put(key, value string) error
	Get(key string) (string, error)
	List() ([]string, error)
}

// dbPoolEntry/dbPool/dbConn pool SQL connections by connect string:
// multiple rdb SQL stores that happen to share a connect string share one
// *sql.DB, ref-counted.
type dbPoolEntry struct {
	db   *sql.DB
	refs int
}

type dbPool struct {
	mu     sync.Mutex
	ctx    context.Context
	insts  map[string]*dbPoolEntry
}

var pool = &dbPool{ctx: context.Background(), insts: make(map[string]*dbPoolEntry)}

// dbConn is a pooled connection suitable for executing SQL statements.
type dbConn struct {
	conn *sql.Conn
	key  string
}

func (p *dbPool) connect(spec string) (*dbConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	specs := strings.SplitN(spec, ":", 2)
	if len(specs) < 2 {
		return nil, ErrStoreInvalidSpec
	}
	engine, arg := specs[0], specs[1]

	entry, ok := p.insts[spec]
	if !ok {
		entry = &dbPoolEntry{}
		var db *sql.DB
		var err error
		switch engine {
		case "sqlite3":
			if fi, statErr := os.Stat(arg); statErr != nil || fi.IsDir() {
				return nil, ErrStoreNotAvailable
			}
			db, err = sql.Open("sqlite3", arg)
		case "mysql":
			db, err = sql.Open("mysql", arg)
		default:
			return nil, ErrStoreInvalidSpec
		}
		if err != nil {
			return nil, err
		}
		entry.db = db
		p.insts[spec] = entry
	}
	entry.refs++

	conn, err := entry.db.Conn(p.ctx)
	if err != nil {
		return nil, err
	}
	return &dbConn{conn: conn, key: spec}, nil
}

func (c *dbConn) Close() error {
	if err := c.conn.Close(); err != nil {
		return err
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	entry, ok := pool.insts[c.key]
	if !ok {
		return nil
	}
	entry.refs--
	if entry.refs == 0 {
		err := entry.db.Close()
		delete(pool.insts, c.key)
		return err
	}
	return nil
}

// sqlStore is a KVStore backed by a pooled SQL connection and a "store"
// table of key/value pairs.
type sqlStore struct {
	db *dbConn
}

// NewSQLStore connects to a SQL database given an
// "<engine>:<connect-string>" specification (e.g.
// "sqlite3:/var/lib/ppn/rdb.db" or "mysql:user:pass@tcp(host)/db") and
// expects a pre-existing "store(key text, value text)" table.
func NewSQLStore(spec string) (KVStore, error) {
	conn, err := pool.connect(spec)
	if err != nil {
		return nil, err
	}
	s := &sqlStore{db: conn}
	row := conn.conn.QueryRowContext(pool.ctx, "select count(*) from store")
	var n int
	if row.Scan(&n) != nil {
		return nil, ErrStoreNotAvailable
	}
	return s, nil
}

func (s *sqlStore) Put(key, value string) error {
	_, err := s.db.conn.ExecContext(pool.ctx,
		"insert into store(key,value) values(?,?)", key, value)
	return err
}

func (s *sqlStore) Get(key string) (string, error) {
	row := s.db.conn.QueryRowContext(pool.ctx, "select value from store where key=?", key)
	var value string
	err := row.Scan(&value)
	return value, err
}

func (s *sqlStore) List() ([]string, error) {
	rows, err := s.db.conn.QueryContext(pool.ctx, "select key from store")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// redisStore is a KVStore backed by a Redis server.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to a Redis server at addr, optionally
// authenticating with passwd and selecting database db.
func NewRedisStore(addr, passwd string, db int) (KVStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: passwd, DB: db})
	if client == nil {
		return nil, ErrStoreNotAvailable
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Put(key, value string) error {
	return s.client.Set(context.Background(), key, value, 0).Err()
}

func (s *redisStore) Get(key string) (string, error) {
	return s.client.Get(context.Background(), key).Result()
}

func (s *redisStore) List() ([]string, error) {
	var (
		cursor uint64
		keys   = make([]string, 0)
		ctx    = context.Background()
	)
	for {
		segment, next, err := s.client.Scan(ctx, cursor, "*", 10).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, segment...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// NewKVStore dispatches to a backend by mode ("sql" or "redis").
func NewKVStore(mode string, spec map[string]string) (KVStore, error) {
	switch mode {
	case "sql":
		connect, ok := spec["connect"]
		if !ok {
			return nil, ErrStoreInvalidSpec
		}
		return NewSQLStore(connect)
	case "redis":
		addr, ok := spec["addr"]
		if !ok {
			return nil, ErrStoreInvalidSpec
		}
		return NewRedisStore(addr, spec["passwd"], 0)
	default:
		return nil, fmt.Errorf("rdb: unknown store mode %q", mode)
	}
}
