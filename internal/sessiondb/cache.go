package sessiondb

import (
	"database/sql"
	"sync"
)

// StatementCache caches prepared statements per portal database so the
// hot session/roll queries are prepared once per connection.
type StatementCache struct {
	mu         sync.RWMutex
	statements map[string]*sql.Stmt
	db         *sql.DB
}

// NewStatementCache creates a new prepared statement cache
func NewStatementCache(db *sql.DB) *StatementCache {
	return &StatementCache{
		statements: make(map[string]*sql.Stmt),
		db:         db,
	}
}

// Get retrieves or creates a prepared statement
func (c *StatementCache) Get(query string) (*sql.Stmt, error) {
	c.mu.RLock()
	if stmt, ok := c.statements[query]; ok {
		c.mu.RUnlock()
		return stmt, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if stmt, ok := c.statements[query]; ok {
		return stmt, nil
	}

	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	c.statements[query] = stmt
	return stmt, nil
}

// Close releases every cached statement
func (c *StatementCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for query, stmt := range c.statements {
		stmt.Close()
		delete(c.statements, query)
	}
}
