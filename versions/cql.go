package versions

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/mock"

	"github.com/datastax/custom-tables/schema"
)

// CQLSession is the part of a Cassandra session the CQL store needs.
type CQLSession interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	// Scan reads the first row into dest, returning ErrNotFound when empty
	Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error
}

type GoCqlSession struct {
	ref         *gocql.Session
	consistency gocql.Consistency
}

// NewGoCqlSession connects to the cluster formed by hosts.
func NewGoCqlSession(username, password string, hosts ...string) (*GoCqlSession, error) {
	cluster := gocql.NewCluster(hosts...)
	if username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: username,
			Password: password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("failed to create session")
	}

	return &GoCqlSession{ref: session, consistency: gocql.LocalQuorum}, nil
}

func (s *GoCqlSession) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return s.ref.Query(stmt, values...).WithContext(ctx).Consistency(s.consistency).Exec()
}

func (s *GoCqlSession) Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error {
	err := s.ref.Query(stmt, values...).WithContext(ctx).Consistency(s.consistency).Scan(dest...)
	if errors.Is(err, gocql.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GoCqlSession) Close() {
	s.ref.Close()
}

// CQLStore keeps installation-global versions in Cassandra so that every
// node of a multi-database deployment agrees on them.
type CQLStore struct {
	session  CQLSession
	keyspace string
	table    string
}

func NewCQLStore(session CQLSession, keyspace string) (*CQLStore, error) {
	if !schema.IsIdentifier(keyspace) {
		return nil, fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	return &CQLStore{session: session, keyspace: keyspace, table: DefaultTableName}, nil
}

// Install creates the versions table when missing. The keyspace must exist.
func (s *CQLStore) Install(ctx context.Context) error {
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS "%s"."%s" (scope text, name text, version text, PRIMARY KEY ((scope), name))`,
		s.keyspace, s.table)
	return s.session.Exec(ctx, query)
}

func (s *CQLStore) Get(ctx context.Context, scope Scope, name string) (string, error) {
	var version string
	query := fmt.Sprintf(`SELECT version FROM "%s"."%s" WHERE scope = ? AND name = ?`, s.keyspace, s.table)
	if err := s.session.Scan(ctx, query, []interface{}{string(scope), name}, &version); err != nil {
		return "", err
	}
	return version, nil
}

func (s *CQLStore) Set(ctx context.Context, scope Scope, name string, version string) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (scope, name, version) VALUES (?, ?, ?)`, s.keyspace, s.table)
	return s.session.Exec(ctx, query, string(scope), name, version)
}

func (s *CQLStore) Delete(ctx context.Context, scope Scope, name string) error {
	query := fmt.Sprintf(`DELETE FROM "%s"."%s" WHERE scope = ? AND name = ?`, s.keyspace, s.table)
	return s.session.Exec(ctx, query, string(scope), name)
}

type CQLSessionMock struct {
	mock.Mock
}

func (o *CQLSessionMock) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return o.Called(stmt, values).Error(0)
}

func (o *CQLSessionMock) Scan(ctx context.Context, stmt string, values []interface{}, dest ...interface{}) error {
	args := o.Called(stmt, values, dest)
	return args.Error(0)
}
