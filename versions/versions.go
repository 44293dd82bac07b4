// Package versions persists the schema version of each installed table.
package versions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/mock"
)

// Scope says where a version is shared: one site or the whole installation.
type Scope string

const (
	ScopeSite   Scope = "site"
	ScopeGlobal Scope = "global"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSite, "":
		return ScopeSite, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	}
	return "", fmt.Errorf("unknown version scope %q", s)
}

// ErrNotFound is returned by Get when no version was ever persisted.
var ErrNotFound = errors.New("version not found")

type Store interface {
	Get(ctx context.Context, scope Scope, name string) (string, error)
	Set(ctx context.Context, scope Scope, name string, version string) error
	Delete(ctx context.Context, scope Scope, name string) error
}

// Compare orders two version strings, treating the empty string as lower
// than any version.
func Compare(a, b string) (int, error) {
	if a == b {
		return 0, nil
	}
	if a == "" {
		return -1, nil
	}
	if b == "" {
		return 1, nil
	}
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}
	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

type StoreMock struct {
	mock.Mock
}

func (o *StoreMock) Get(ctx context.Context, scope Scope, name string) (string, error) {
	args := o.Called(scope, name)
	return args.String(0), args.Error(1)
}

func (o *StoreMock) Set(ctx context.Context, scope Scope, name string, version string) error {
	return o.Called(scope, name, version).Error(0)
}

func (o *StoreMock) Delete(ctx context.Context, scope Scope, name string) error {
	return o.Called(scope, name).Error(0)
}
