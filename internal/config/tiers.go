package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type TierConfigHolder struct {
	current atomic.Value // holds tierdomain.Table
	log     *zap.Logger
}

// NewTierConfigHolder loads tiers.yml and keeps watching it. A missing file
// falls back to the built-in table; an invalid reload keeps the previous table.
func NewTierConfigHolder(cfg Config, log *zap.Logger) (*TierConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if cfg.TiersConfigPath != "" {
		v.SetConfigFile(cfg.TiersConfigPath)
	} else {
		v.SetConfigName("tiers")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/referral")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REFERRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &TierConfigHolder{log: log.Named("tier.config")}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg.TiersConfigPath != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		holder.current.Store(tierdomain.DefaultTable())
		holder.log.Info("tier config file not found, using defaults")
		return holder, nil
	}

	table, err := readTierTable(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(table)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readTierTable(v)
		if err != nil {
			holder.log.Warn("tier config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		holder.log.Info("tier config reloaded", zap.String("file", e.Name), zap.Int("tiers", updated.Len()))
	})

	return holder, nil
}

func readTierTable(v *viper.Viper) (tierdomain.Table, error) {
	var defs []tierdomain.Definition
	if err := v.UnmarshalKey("tiers", &defs); err != nil {
		return tierdomain.Table{}, err
	}
	return tierdomain.NewTable(defs)
}

func (h *TierConfigHolder) Table() tierdomain.Table {
	return h.current.Load().(tierdomain.Table)
}
