package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crm-backup-service/internal/backup"
	"crm-backup-service/internal/models"
)

var (
	settingsOwnerID   int64
	settingsTypes     string
	settingsFrequency string
	settingsHour      string
	linkAuthCode      string
	linkState         string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change an owner's backup settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show an owner's backup settings",
	Long: `Show an owner's backup settings. An owner seen for the first time gets
defaults: all entity types, weekly frequency, 02:00 backup hour.`,
	RunE: runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change an owner's backup settings",
	RunE:  runSettingsSet,
}

var settingsLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link the owner's cloud storage account",
	Long: `Link cloud storage. Without --code the consent URL is printed; visit it,
authorize the application, then rerun with --code=<authorization-code>.`,
	RunE: runSettingsLink,
}

var settingsUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Unlink the owner's cloud storage account",
	RunE:  runSettingsUnlink,
}

func init() {
	for _, c := range []*cobra.Command{settingsShowCmd, settingsSetCmd, settingsLinkCmd, settingsUnlinkCmd} {
		c.Flags().Int64Var(&settingsOwnerID, "owner", 0, "owner id (required)")
		c.MarkFlagRequired("owner")
	}

	settingsSetCmd.Flags().StringVar(&settingsTypes, "types", "", "comma-separated entity types to back up")
	settingsSetCmd.Flags().StringVar(&settingsFrequency, "frequency", "", "backup frequency (WEEKLY, MONTHLY)")
	settingsSetCmd.Flags().StringVar(&settingsHour, "hour", "", "backup hour as HH:MM")

	settingsLinkCmd.Flags().StringVar(&linkAuthCode, "code", "", "authorization code from the consent flow")
	settingsLinkCmd.Flags().StringVar(&linkState, "state", "backup-link", "OAuth2 state parameter")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsLinkCmd)
	settingsCmd.AddCommand(settingsUnlinkCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	settings, err := app.settings.Get(context.Background(), settingsOwnerID)
	if err != nil {
		return err
	}
	printSettings(settings)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx := context.Background()
	settings, err := app.settings.Get(ctx, settingsOwnerID)
	if err != nil {
		return err
	}

	if settingsTypes != "" {
		var types []models.EntityType
		for _, part := range strings.Split(settingsTypes, ",") {
			et, err := models.ParseEntityType(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			types = append(types, et)
		}
		settings.DataTypes = types
	}
	if settingsFrequency != "" {
		settings.Frequency = models.Frequency(strings.ToUpper(settingsFrequency))
	}
	if settingsHour != "" {
		minutes, err := backup.ParseBackupHour(settingsHour)
		if err != nil {
			return err
		}
		settings.BackupHour = minutes
	}

	saved, err := app.settings.Save(ctx, settings)
	if err != nil {
		return err
	}
	color.Green("Settings updated")
	printSettings(saved)
	return nil
}

func runSettingsLink(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	if linkAuthCode == "" {
		fmt.Println("Visit this URL to authorize cloud storage access:")
		fmt.Println()
		fmt.Println("  " + app.settings.AuthURL(linkState))
		fmt.Println()
		fmt.Println("Then rerun with --code=<authorization-code>")
		return nil
	}

	if err := app.settings.LinkCloud(context.Background(), settingsOwnerID, linkAuthCode); err != nil {
		return err
	}
	color.Green("Cloud storage linked for owner %d", settingsOwnerID)
	return nil
}

func runSettingsUnlink(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.settings.UnlinkCloud(context.Background(), settingsOwnerID); err != nil {
		return err
	}
	color.Green("Cloud storage unlinked for owner %d", settingsOwnerID)
	return nil
}

func printSettings(s *models.OwnerSettings) {
	types := make([]string, len(s.DataTypes))
	for i, t := range s.DataTypes {
		types[i] = string(t)
	}

	bold := color.New(color.Bold)
	bold.Printf("Owner %d\n", s.OwnerID)
	fmt.Printf("  Data types:  %s\n", strings.Join(types, ", "))
	fmt.Printf("  Frequency:   %s\n", s.Frequency)
	fmt.Printf("  Backup hour: %s\n", backup.FormatBackupHour(s.BackupHour))
	if s.CloudLinked {
		account := s.CloudAccountEmail
		if account == "" {
			account = "linked"
		}
		fmt.Printf("  Cloud:       %s\n", account)
	} else {
		fmt.Printf("  Cloud:       not linked\n")
	}
}
