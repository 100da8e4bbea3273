package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crm-backup-service/internal/models"
)

var (
	backupOwnerID    int64
	backupEntityType string
	downloadOut      string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Generate, list, download and delete backups",
}

var backupGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a manual backup for one owner",
	Long: `Generate a manual backup. With --type one entity type is snapshotted;
without it every type selected in the owner's settings is. Types with no rows
are skipped without creating a backup.`,
	RunE: runBackupGenerate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's backups",
	RunE:  runBackupList,
}

var backupDownloadCmd = &cobra.Command{
	Use:   "download <backup-id>",
	Short: "Write a backup's CSV artifact to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDownload,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a backup and its artifact files",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDelete,
}

var backupPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run a retention sweep now",
	RunE:  runBackupPurge,
}

func init() {
	backupGenerateCmd.Flags().Int64Var(&backupOwnerID, "owner", 0, "owner id (required)")
	backupGenerateCmd.Flags().StringVar(&backupEntityType, "type", "", "entity type (DEALS, COMPANIES, CONTACTS, EQUIPMENT, SIM_CARDS)")
	backupGenerateCmd.MarkFlagRequired("owner")

	backupListCmd.Flags().Int64Var(&backupOwnerID, "owner", 0, "owner id (required)")
	backupListCmd.MarkFlagRequired("owner")

	backupDownloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "output file (default stdout)")

	backupCmd.AddCommand(backupGenerateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupDownloadCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupPurgeCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupGenerate(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()
	defer app.startUploader()()

	ctx := context.Background()

	var types []models.EntityType
	if backupEntityType != "" {
		et, err := models.ParseEntityType(backupEntityType)
		if err != nil {
			return err
		}
		types = []models.EntityType{et}
	} else {
		settings, err := app.settings.Get(ctx, backupOwnerID)
		if err != nil {
			return err
		}
		types = settings.DataTypes
	}

	for _, et := range types {
		b, err := app.generator.Generate(ctx, backupOwnerID, et, models.FrequencyManual)
		if err != nil {
			return err
		}
		if b == nil {
			color.Yellow("%-10s skipped: no rows to snapshot", et)
			continue
		}
		color.Green("%-10s %s (%s, expires %s)", et, b.ID, b.ArtifactSize,
			b.ExpiresAt.Format("2006-01-02"))
	}
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	backups, err := app.store.ListBackups(context.Background(), backupOwnerID)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("%-38s %-10s %-9s %-10s %-20s %s\n",
		"ID", "TYPE", "FREQ", "SIZE", "CREATED", "EXPIRES")
	for _, b := range backups {
		fmt.Printf("%-38s %-10s %-9s %-10s %-20s %s\n",
			b.ID, b.EntityType, b.Frequency, b.ArtifactSize,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			b.ExpiresAt.Format("2006-01-02"))
	}
	return nil
}

func runBackupDownload(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	b, err := app.store.GetBackup(context.Background(), args[0])
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("backup %s not found", args[0])
	}

	f, err := os.Open(b.CSVPath)
	if err != nil {
		return fmt.Errorf("failed to open backup artifact: %w", err)
	}
	defer f.Close()

	out := os.Stdout
	if downloadOut != "" {
		out, err = os.Create(downloadOut)
		if err != nil {
			return err
		}
		defer out.Close()
	}
	if _, err := io.Copy(out, f); err != nil {
		return err
	}
	if downloadOut != "" {
		color.Green("Wrote %s", downloadOut)
	}
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	warnings, err := app.retention.Delete(context.Background(), args[0])
	for _, w := range warnings {
		color.Yellow("warning: %s", w)
	}
	if err != nil {
		return err
	}
	color.Green("Backup %s deleted", args[0])
	return nil
}

func runBackupPurge(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	result, err := app.retention.PurgeExpired(context.Background())
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		color.Yellow("warning: %s", w)
	}
	color.Green("Purged %d of %d expired backups", result.Purged, result.Processed)
	return nil
}
