package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crm-backup-service/internal/models"
)

var restoreYes bool

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a backup into the live tables",
	Long: `Restore the rows captured by a backup. Deals, companies and contacts are
fully replaced: the owner's current rows are deleted before the rebuild. For
equipment and SIM cards, rows whose serial number or ICCID already exists are
skipped instead. The whole restore runs in one transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx := context.Background()
	backupID := args[0]

	b, err := app.store.GetBackup(ctx, backupID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("backup %s not found", backupID)
	}

	if !restoreYes && isReplacingType(b.EntityType) {
		color.Yellow("Restoring %s replaces ALL current %s rows of owner %d with the backup from %s.",
			backupID, b.EntityType, b.OwnerID, b.CreatedAt.Format("2006-01-02 15:04"))
		if !confirm("Continue? [y/N]: ") {
			fmt.Println("Aborted")
			return nil
		}
	}

	result, err := app.restore.Restore(ctx, backupID)
	if err != nil {
		return err
	}

	color.Green("Restored %d rows of %s from %s", result.RowsRestored, result.EntityType, result.BackupID)
	if result.RowsSkipped > 0 {
		color.Yellow("%d malformed rows skipped", result.RowsSkipped)
	}
	if result.DuplicatesSkipped > 0 {
		color.Yellow("%d duplicates skipped", result.DuplicatesSkipped)
	}
	return nil
}

func isReplacingType(et models.EntityType) bool {
	switch et {
	case models.EntityDeals, models.EntityCompanies, models.EntityContacts:
		return true
	}
	return false
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
