package main

import (
	"log"

	"numbot/core/bootstrap"
	corecmd "numbot/core/cmd"
	coreconfig "numbot/core/config"
	"numbot/internal/bot"
	"numbot/internal/provider"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config/config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return nil, err
			}
			return carrier{cfg}, nil
		},
		Bootstrap: func(cc corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := cc.CoreConfig()
			res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
			if err != nil {
				return nil, err
			}
			twilio := provider.NewTwilio(cfg.Provider.BaseURL, cfg.Provider.Timeout())
			return bot.NewApp(cfg, res.Store, twilio), nil
		},
	})
	if err != nil {
		log.Fatalf("numbot: %v", err)
	}
}

type carrier struct {
	cfg *coreconfig.Config
}

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }
