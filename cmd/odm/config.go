package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/andreyvit/odm"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	store    *odm.Store
	registry *odm.Registry
	logger   *slog.Logger
)

func setupFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("schema", "schema.yaml", "YAML file with model definitions")
	flags.String("backend", "bolt", "storage backend (bolt, badger, memory)")
	flags.String("path", "odm.db", "database file (bolt) or directory (badger)")
	flags.String("codec", "msgpack", "record encoding (msgpack, json, msgpack+zstd, json+zstd)")
	flags.Duration("timeout", 0, "wait this long for the database lock (bolt)")
	flags.Bool("verbose", false, "log debug output to stderr")
}

// initConfig loads .env files and maps ODM_* environment variables onto flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("odm")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	codec, err := odm.LookupCodec(viper.GetString("codec"))
	if err != nil {
		return err
	}
	sopt := odm.StoreOptions{Codec: codec, Logger: logger}
	switch backend := viper.GetString("backend"); backend {
	case "bolt":
		store, err = odm.OpenBoltStore(viper.GetString("path"), odm.BoltOptions{Timeout: viper.GetDuration("timeout")}, sopt)
	case "badger":
		store, err = odm.OpenBadgerStore(odm.BadgerOptions{Path: viper.GetString("path"), SyncWrites: true, Logger: logger}, sopt)
	case "memory":
		store = odm.NewMemoryStore(sopt)
	default:
		err = fmt.Errorf("invalid backend %s", backend)
	}
	if err != nil {
		return err
	}

	f, err := os.Open(viper.GetString("schema"))
	if err != nil {
		return err
	}
	defer f.Close()
	defs, err := odm.LoadSchemas(f)
	if err != nil {
		return err
	}
	registry = odm.NewRegistry(odm.Options{Adapter: store, Logger: logger})
	return registry.DefineAll(defs)
}

func teardown(_ *cobra.Command, _ []string) {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("closing store", "err", err)
		}
	}
}

func lookupModel(name string) (*odm.Model, error) {
	m, ok := registry.Model(name)
	if !ok {
		return nil, fmt.Errorf("unknown model %q (have %s)", name, strings.Join(registry.Names(), ", "))
	}
	return m, nil
}
