package tcplistener

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// Config defines the TCP input section in config file
type Config struct {
	Address        string            `yaml:"address"`        // listening address, e.g. ":8080"; port zero is assigned by OS
	MaxConnections int               `yaml:"maxConnections"` // cap of concurrent connections
	MaxMessageSize datasize.ByteSize `yaml:"maxMessageSize"` // ceiling of one unterminated message
}

// VerifyConfig checks configuration
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Address) == 0 {
		return fmt.Errorf(".address is unspecified")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf(".maxConnections is unspecified")
	}
	if cfg.MaxMessageSize.Bytes() == 0 {
		return fmt.Errorf(".maxMessageSize is unspecified")
	}
	return nil
}
