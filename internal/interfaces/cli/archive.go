package cli

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/SafeScan/internal/bootstrap"
	"github.com/turtacn/SafeScan/internal/infrastructure/storage/minio"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse raw page content archived in object storage",
	}

	ls := &cobra.Command{
		Use:   "ls URL|FINGERPRINT",
		Short: "List archived pages for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			objects, err := archive.List(cmd.Context(), resolveFingerprint(args[0]))
			if err != nil {
				return err
			}
			return PrintResult(cmd, archiveListing(objects))
		},
	}

	var outFile string
	get := &cobra.Command{
		Use:   "get URL|FINGERPRINT KIND",
		Short: "Print an archived page, e.g. KIND product_html",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := openArchive(cmd)
			if err != nil {
				return err
			}
			content, err := archive.Fetch(cmd.Context(), resolveFingerprint(args[0]), args[1])
			if err != nil {
				return err
			}
			if outFile != "" {
				if err := os.WriteFile(outFile, content, 0o644); err != nil {
					return errors.Wrap(err, errors.ErrCodeInternal, "failed to write "+outFile)
				}
				PrintSuccess(cmd, "wrote "+outFile)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
	get.Flags().StringVarP(&outFile, "out", "O", "", "write to a file instead of stdout")

	cmd.AddCommand(ls, get)
	return cmd
}

func openArchive(cmd *cobra.Command) (*minio.ContentArchive, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	if !cliCtx.Config.MinIO.Enabled {
		return nil, errors.InvalidParam("minio is not enabled in the configuration")
	}
	return bootstrap.OpenArchive(cliCtx.Config.MinIO, cliCtx.Logger)
}

type archiveListing []minio.ArchivedObject

func (l archiveListing) TableHeaders() []string {
	return []string{"Kind", "Size", "Modified", "Key"}
}

func (l archiveListing) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, o := range l {
		rows = append(rows, []string{o.Kind, strconv.FormatInt(o.Size, 10), o.LastModified.Local().Format("2006-01-02 15:04"), o.Key})
	}
	return rows
}
