package config

import (
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/datastax/custom-tables/log"
)

type ConfigMock struct {
	mock.Mock
}

func NewConfigMock() *ConfigMock {
	return &ConfigMock{}
}

func (o *ConfigMock) Default() *ConfigMock {
	o.On("TablePrefix").Return("wp_")
	o.On("Naming").Return(NewDefaultNaming())
	o.On("SupportedOperations").Return(TableInstall | TableUpgrade | TableDrop | TableTruncate | TableDeleteAll)
	o.On("Logger").Return(log.NewZapLogger(zap.NewExample()))
	return o
}

func (o *ConfigMock) TablePrefix() string {
	args := o.Called()
	return args.String(0)
}

func (o *ConfigMock) Naming() NamingConvention {
	args := o.Called()
	return args.Get(0).(NamingConvention)
}

func (o *ConfigMock) SupportedOperations() TableOperations {
	args := o.Called()
	return args.Get(0).(TableOperations)
}

func (o *ConfigMock) Logger() log.Logger {
	args := o.Called()
	return args.Get(0).(log.Logger)
}
