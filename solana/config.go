package solana

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RPCEndpoint       string `envconfig:"SOLANA_RPC_ENDPOINT" default:"https://api.mainnet-beta.solana.com"`
	RPCTimeoutSeconds int    `envconfig:"SOLANA_RPC_TIMEOUT" default:"15"`
	Commitment        string `envconfig:"SOLANA_COMMITMENT" default:"confirmed"`
}

func LoadConfig() (c *Config, err error) {
	c = &Config{}
	err = envconfig.Process("", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}
