package cache

import "github.com/stretchr/testify/mock"

type CacheMock struct {
	mock.Mock
}

func (o *CacheMock) Add(group Group, key string, value interface{}) bool {
	return o.Called(group, key, value).Bool(0)
}

func (o *CacheMock) Get(group Group, key string) (interface{}, bool) {
	args := o.Called(group, key)
	return args.Get(0), args.Bool(1)
}

func (o *CacheMock) Set(group Group, key string, value interface{}) bool {
	return o.Called(group, key, value).Bool(0)
}

func (o *CacheMock) Delete(group Group, key string) bool {
	return o.Called(group, key).Bool(0)
}

func (o *CacheMock) WritesSuspended() bool {
	return o.Called().Bool(0)
}

func (o *CacheMock) DeletesSuspended() bool {
	return o.Called().Bool(0)
}
