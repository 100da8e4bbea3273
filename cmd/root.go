package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crm-backup-service/internal/backup"
	"crm-backup-service/internal/datastore"
	"crm-backup-service/internal/logging"
)

var cfgFile string

// CLI flag variables
var (
	databaseDSN  string
	artifactRoot string
	verbose      bool
	quiet        bool
	logFile      string
	logFormat    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crm-backup-service",
	Short: "Backup and restore service for CRM business data",
	Long: `CRM Backup Service snapshots business data (deals, companies, contacts,
equipment and SIM cards) into per-owner CSV and PDF artifacts, mirrors them to
the owner's linked cloud storage, purges them when the retention window
elapses, and restores them on demand.

Examples:
  # Run the scheduler daemon
  crm-backup-service serve --config=config.yaml

  # Generate a manual backup of one owner's deals
  crm-backup-service backup generate --owner=42 --type=DEALS

  # List an owner's backups
  crm-backup-service backup list --owner=42

  # Restore a backup (replaces current rows for owner-scoped types)
  crm-backup-service restore backup-20260301-020500-1a2b3c4d --yes

  # Inspect or change an owner's backup settings
  crm-backup-service settings show --owner=42
  crm-backup-service settings set --owner=42 --frequency=MONTHLY --hour=03:30`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.crm-backup-service.yaml)")
	rootCmd.PersistentFlags().StringVar(&databaseDSN, "dsn", "", "MySQL DSN of the CRM database")
	rootCmd.PersistentFlags().StringVar(&artifactRoot, "artifact-root", "", "directory for backup artifact files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file in addition to stdout")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("backup.artifact_root", rootCmd.PersistentFlags().Lookup("artifact-root"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".crm-backup-service")
	}

	viper.SetEnvPrefix("CRM_BACKUP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// serviceConfig is the whole configuration tree loaded from the config file,
// environment and flags.
type serviceConfig struct {
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Backup backup.Config `mapstructure:"backup"`
	Log    struct {
		File   string `mapstructure:"file"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func loadServiceConfig() (*serviceConfig, error) {
	config := &serviceConfig{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	config.Backup.SetDefaults()
	if err := config.Backup.Validate(); err != nil {
		return nil, err
	}
	if config.Database.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (--dsn flag, config file, or CRM_BACKUP_DATABASE_DSN)")
	}
	return config, nil
}

func buildLogger(config *serviceConfig) (*logging.Logger, error) {
	level := logging.LogLevelNormal
	if verbose {
		level = logging.LogLevelVerbose
	}
	if quiet {
		level = logging.LogLevelQuiet
	}
	return logging.NewLogger(logging.Config{
		Level:   level,
		Format:  config.Log.Format,
		LogFile: config.Log.File,
	})
}

// app bundles the wired pipeline components behind one teardown.
type app struct {
	config    *serviceConfig
	logger    *logging.Logger
	store     *datastore.Store
	settings  *backup.SettingsStore
	generator *backup.Generator
	uploader  *backup.Uploader
	retention *backup.RetentionManager
	restore   *backup.RestoreEngine
	scheduler *backup.Scheduler
}

// buildApp wires the full pipeline. The uploader is created but not started;
// serve starts it, one-shot commands call startUploader themselves.
func buildApp() (*app, error) {
	if verbose && quiet {
		return nil, fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}

	config, err := loadServiceConfig()
	if err != nil {
		return nil, err
	}
	logger, err := buildLogger(config)
	if err != nil {
		return nil, err
	}

	store, err := datastore.NewStore(config.Database.DSN)
	if err != nil {
		return nil, err
	}

	cloud := backup.NewDriveClient(config.Backup.Cloud)
	uploader := backup.NewUploader(cloud, store, &config.Backup, logger)
	settings := backup.NewSettingsStore(store, cloud, &config.Backup, logger)
	renderer := backup.NewTableRenderer()
	generator := backup.NewGenerator(store, store, renderer, uploader, &config.Backup, logger)
	retention := backup.NewRetentionManager(store, logger)
	restoreEngine := backup.NewRestoreEngine(store, store, &config.Backup, logger)
	scheduler := backup.NewScheduler(store, generator, retention, &config.Backup, logger)

	return &app{
		config:    config,
		logger:    logger,
		store:     store,
		settings:  settings,
		generator: generator,
		uploader:  uploader,
		retention: retention,
		restore:   restoreEngine,
		scheduler: scheduler,
	}, nil
}

// startUploader starts the upload worker pool for one-shot commands and
// returns the matching teardown that drains in-flight uploads.
func (a *app) startUploader() func() {
	a.uploader.Start()
	return func() {
		a.uploader.Wait()
		a.uploader.Close()
	}
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warnf("Closing database connection failed: %v", err)
	}
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crm-backup-service version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}

func init() {
	rootCmd.AddCommand(createVersionCommand())
}
