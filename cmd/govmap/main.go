package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ronfried1/govmap-playground/dbf"
	"github.com/ronfried1/govmap-playground/util/logger"
)

var (
	verbose  bool
	encoding string
	output   string
)

var rootCmd = &cobra.Command{
	Use:   "govmap",
	Short: "Offline tooling for GovMap data exports",
	Long: `govmap bundles the parts of the GovMap debugging console that need
no browser at all: decoding legacy DBF exports and turning them into CSV.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetVerbose()
		}
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <file.dbf>",
	Short: "Convert a DBF file to CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.dbf>",
	Short: "Print the header summary and field table of a DBF file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&encoding, "encoding", "", "charset for text fields (default: latin-1)")
	convertCmd.Flags().StringVarP(&output, "output", "o", "", "write CSV to this path instead of stdout")
	rootCmd.AddCommand(convertCmd, inspectCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	logger.L.Debugf("read %d bytes from %s", len(buf), args[0])

	res, err := dbf.ConvertWithEncoding(buf, encoding)
	if err != nil {
		return err
	}
	logger.L.WithFields(logrus.Fields{
		"declared": res.DeclaredRecordCount,
		"parsed":   res.ParsedRecordCount,
		"fields":   len(res.Fields),
	}).Info("converted")

	// Same trailing terminator no matter where the CSV goes.
	if output == "" || output == "-" {
		fmt.Fprint(cmd.OutOrStdout(), res.CSV+"\r\n")
		return nil
	}
	return os.WriteFile(output, []byte(res.CSV+"\r\n"), 0644)
}

func runInspect(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	res, err := dbf.ConvertWithEncoding(buf, encoding)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "declared records: %d\n", res.DeclaredRecordCount)
	fmt.Fprintf(out, "parsed records:   %d\n", res.ParsedRecordCount)
	fmt.Fprintf(out, "header length:    %d\n", res.HeaderLength)
	fmt.Fprintf(out, "record length:    %d\n", res.RecordLength)
	fmt.Fprintln(out)
	for i, field := range res.Fields {
		fmt.Fprintf(out, "%3d  %-11s  %c  len=%-3d  dec=%d\n",
			i+1, field.Name, field.Type, field.Length, field.Decimal)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.L.Error(err)
		os.Exit(1)
	}
}
