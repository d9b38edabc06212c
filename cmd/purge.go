package cmd

import (
	"github.com/spf13/cobra"

	"tgsender/internal/cleaner"
	"tgsender/pkg/logx"
)

var purgeDirs []string

var purgeCmd = &cobra.Command{
	Use:   "purge <phone-list-file>",
	Short: "Delete the session artifacts of listed phone numbers",
	Long:  "Removes artifacts for accounts already known dead without connecting them. The list file holds one phone number per line; # starts a comment.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

func init() {
	purgeCmd.Flags().StringSliceVar(&purgeDirs, "dirs", nil, "session directories to purge from (default: from config)")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.close()

	phones, err := cleaner.LoadPhoneList(args[0])
	if err != nil {
		return err
	}

	dirs := a.cfg.CleanDirs()
	if len(purgeDirs) > 0 {
		dirs = purgeDirs
	}

	res, err := cleaner.Purge(dirs, phones, a.log)
	if err != nil {
		return err
	}
	a.log.Info("purge finished",
		logx.Int("listed", res.Listed),
		logx.Int("deleted", res.Deleted),
		logx.Int("missing", res.Missing))
	return nil
}
