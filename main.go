// dblite manages a local SQLite snapshot of a literature database: it
// fetches the compressed snapshot from object storage, uploads rebuilt
// snapshots, assembles snapshots from per-table databases and reports on
// the local copy. All settings come from DBLITE_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/indralab/dblite/internal/config"
	"github.com/indralab/dblite/internal/construction"
	"github.com/indralab/dblite/internal/database"
	"github.com/indralab/dblite/internal/logger"
	"github.com/indralab/dblite/internal/snapshot"
	"github.com/indralab/dblite/internal/storage"
)

var (
	forceFetch  bool
	listMaxKeys int

	assembleOut          string
	assembleAgentTexts   string
	assembleBestContent  string
	assembleEntities     string
	assemblePMIDTextRefs string
	assembleMesh         string

	dumpQuery string
	dumpOut   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dblite",
		Short:         "Manage the local literature snapshot database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download and decompress the snapshot from object storage",
		RunE:  runFetch,
	}
	fetchCmd.Flags().BoolVar(&forceFetch, "force", false, "re-fetch even if the snapshot is already present")

	uploadCmd := &cobra.Command{
		Use:   "upload [path]",
		Short: "Compress a snapshot and upload it to object storage",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUpload,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report on the local snapshot and, when configured, the remote object",
		RunE:  runStatus,
	}

	listCmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List objects in the snapshot bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
	listCmd.Flags().IntVar(&listMaxKeys, "max", 100, "maximum number of objects to list")

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the configured snapshot object from the bucket",
		RunE:  runDelete,
	}

	assembleCmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble per-table databases into a single snapshot",
		RunE:  runAssemble,
	}
	assembleCmd.Flags().StringVar(&assembleOut, "out", "", "path of the assembled snapshot")
	assembleCmd.Flags().StringVar(&assembleAgentTexts, "agent-texts", "", "agent texts database")
	assembleCmd.Flags().StringVar(&assembleBestContent, "best-content", "", "best content database")
	assembleCmd.Flags().StringVar(&assembleEntities, "entities", "", "entities database")
	assembleCmd.Flags().StringVar(&assemblePMIDTextRefs, "pmid-text-refs", "", "pmid to text ref database")
	assembleCmd.Flags().StringVar(&assembleMesh, "mesh", "", "mesh database")
	for _, flag := range []string{"out", "agent-texts", "best-content", "entities", "pmid-text-refs", "mesh"} {
		assembleCmd.MarkFlagRequired(flag)
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump the results of a read-only query to a gzip-compressed CSV",
		RunE:  runDump,
	}
	dumpCmd.Flags().StringVar(&dumpQuery, "query", "", "SQL query to run against the snapshot")
	dumpCmd.Flags().StringVar(&dumpOut, "out", "", "output csv.gz path")
	dumpCmd.MarkFlagRequired("query")
	dumpCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(fetchCmd, uploadCmd, statusCmd, listCmd, deleteCmd, assembleCmd, dumpCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

// setup loads the configuration and initialises logging.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// remoteService builds the snapshot service after validating that every
// setting needed for object storage access is present. Validation runs
// before the provider is constructed, so a bad environment never causes
// network traffic.
func remoteService(cfg *config.Config) (*snapshot.Service, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}
	provider, err := storage.NewProvider(cfg.S3Bucket, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	return snapshot.NewService(cfg, provider), nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	svc, err := remoteService(cfg)
	if err != nil {
		return err
	}
	return svc.Fetch(forceFetch)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	svc, err := remoteService(cfg)
	if err != nil {
		return err
	}
	path := cfg.Location
	if len(args) > 0 {
		path = args[0]
	}
	return svc.Upload(path)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.ValidateLocal(); err != nil {
		return err
	}

	info, err := os.Stat(cfg.Location)
	if err != nil {
		fmt.Printf("snapshot: absent (%s)\n", cfg.Location)
		return nil
	}
	fmt.Printf("snapshot: %s (%d bytes)\n", cfg.Location, info.Size())

	db, err := database.OpenReadOnly(cfg.Location)
	if err != nil {
		return err
	}
	tables, err := database.Tables(db)
	if err != nil {
		return err
	}
	for _, table := range tables {
		count, err := database.RowCount(db, table)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %d rows\n", table, count)
	}

	// The remote side is only reported when storage access is configured.
	if cfg.ValidateRemote() != nil {
		return nil
	}
	svc, err := remoteService(cfg)
	if err != nil {
		return err
	}
	remote, err := svc.RemoteStatus()
	if err != nil {
		return err
	}
	if remote == nil {
		fmt.Printf("remote: %s/%s absent\n", cfg.S3Bucket, cfg.S3Key)
	} else {
		fmt.Printf("remote: %s/%s (%d bytes, modified %s)\n",
			cfg.S3Bucket, cfg.S3Key, remote.Size, remote.LastModified)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	svc, err := remoteService(cfg)
	if err != nil {
		return err
	}
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	files, err := svc.ListRemote(prefix, listMaxKeys)
	if err != nil {
		return err
	}
	for _, file := range files {
		fmt.Printf("%12d  %s  %s\n", file.Size, file.LastModified, file.Key)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	svc, err := remoteService(cfg)
	if err != nil {
		return err
	}
	return svc.DeleteRemote()
}

func runAssemble(cmd *cobra.Command, args []string) error {
	if _, err := setup(); err != nil {
		return err
	}
	return construction.ConstructLocalDatabase(assembleOut, construction.Sources{
		AgentTextsPath:   assembleAgentTexts,
		BestContentPath:  assembleBestContent,
		EntitiesPath:     assembleEntities,
		PMIDTextRefsPath: assemblePMIDTextRefs,
		MeshPath:         assembleMesh,
	})
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.ValidateLocal(); err != nil {
		return err
	}
	db, err := database.OpenReadOnly(cfg.Location)
	if err != nil {
		return err
	}
	return construction.QueryToCSV(db, dumpQuery, dumpOut)
}
