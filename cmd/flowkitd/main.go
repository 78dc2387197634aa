package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/linkup-social/flowkit/internal/agent"
	"github.com/linkup-social/flowkit/internal/config"
	"github.com/linkup-social/flowkit/internal/logger"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("storage-impl", "memory", "run store backend: memory, sqlite or redis")
	cmd.Flags().String("sqlite-path", "flowkit.db", "path to the sqlite database file")
	cmd.Flags().String("redis-addr", "localhost:6379", "redis host:port")
	cmd.Flags().String("namespace", "flowkit", "key prefix used in redis storage")
	cmd.Flags().String("mongo-url", "", "mongodb connection string for the content database")
	cmd.Flags().String("mongo-db", "linkup", "mongodb database name")
	cmd.Flags().Int("http-port", 8080, "http port for event intake and run inspection")
	cmd.Flags().Int("concurrency", 2, "number of scheduler workers")
	cmd.Flags().Duration("poll-interval", time.Second, "scheduler poll interval")
	cmd.Flags().Duration("lease-ttl", 2*time.Minute, "run lease duration")
	cmd.Flags().Duration("retention", 7*24*time.Hour, "how long terminal runs are kept")
	cmd.Flags().Duration("story-ttl", 24*time.Hour, "story lifetime before expiry")
	cmd.Flags().Duration("reminder-delay", 24*time.Hour, "delay before a connection-request reminder")
	cmd.Flags().Duration("digest-window", 24*time.Hour, "unseen-message digest bucket width")
	cmd.Flags().String("smtp-host", "", "smtp host; empty logs notifications instead of sending")
	cmd.Flags().Int("smtp-port", 587, "smtp port")
	cmd.Flags().String("smtp-username", "", "smtp username")
	cmd.Flags().String("smtp-password", "", "smtp password")
	cmd.Flags().String("smtp-from", "no-reply@linkup.social", "smtp from address")
	cmd.Flags().String("log-level", "info", "log level")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}

	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.SQLitePath = viper.GetString("sqlite-path")
	c.cfg.RedisAddr = viper.GetString("redis-addr")
	c.cfg.Namespace = viper.GetString("namespace")
	c.cfg.MongoURL = viper.GetString("mongo-url")
	c.cfg.MongoDB = viper.GetString("mongo-db")
	c.cfg.HTTPPort = viper.GetInt("http-port")
	c.cfg.Concurrency = viper.GetInt("concurrency")
	c.cfg.PollInterval = viper.GetDuration("poll-interval")
	c.cfg.LeaseTTL = viper.GetDuration("lease-ttl")
	c.cfg.Retention = viper.GetDuration("retention")
	c.cfg.StoryTTL = viper.GetDuration("story-ttl")
	c.cfg.ReminderDelay = viper.GetDuration("reminder-delay")
	c.cfg.DigestWindow = viper.GetDuration("digest-window")
	c.cfg.SMTP.Host = viper.GetString("smtp-host")
	c.cfg.SMTP.Port = viper.GetInt("smtp-port")
	c.cfg.SMTP.Username = viper.GetString("smtp-username")
	c.cfg.SMTP.Password = viper.GetString("smtp-password")
	c.cfg.SMTP.From = viper.GetString("smtp-from")

	return logger.Configure(viper.GetString("log-level"), false)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	a, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return a.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "flowkitd",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
