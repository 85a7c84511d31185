package serve

import (
	"context"
	"fmt"
	"strings"

	cmdUtil "github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/cache"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start an rKV node",
		Long:    `Start an rKV node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_RETRY_ATTEMPTS=5)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitEnv)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8000", cmdUtil.WrapString("The address on which the HTTP API will listen (e.g. localhost:8000, :8000)"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, string(db.ImplBolt), cmdUtil.WrapString("Storage engine of the node (bolt, memory). The memory engine loses all data on restart"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory of the bolt database file"))

	key = "no-sync"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Skip fsync after each bolt transaction. Faster, but committed writes can be lost on a crash"))

	key = "peers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma separated base urls of all other nodes of the cluster (e.g. http://node-2:8000,http://node-3:8000). Empty means single node mode"))

	key = "retry-attempts"
	ServeCmd.PersistentFlags().Int(key, replication.DefaultAttempts, cmdUtil.WrapString("Number of tries per peer and write"))

	key = "retry-delay"
	ServeCmd.PersistentFlags().Duration(key, replication.DefaultRetryDelay, cmdUtil.WrapString("Pause between two tries to the same peer"))

	key = "point-timeout"
	ServeCmd.PersistentFlags().Duration(key, replication.DefaultPointTimeout, cmdUtil.WrapString("Timeout of a single put or delete request to a peer"))

	key = "batch-timeout"
	ServeCmd.PersistentFlags().Duration(key, replication.DefaultBatchTimeout, cmdUtil.WrapString("Timeout of a single batch request to a peer"))

	key = "fan-out"
	ServeCmd.PersistentFlags().String(key, string(replication.FanOutSequential), cmdUtil.WrapString("How writes are sent to the peers (sequential, concurrent)"))

	key = "strict-batch-rollback"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Undo all chunks of a batch if a later chunk or the replication fails. If false, committed chunks are kept"))

	key = "health-ttl"
	ServeCmd.PersistentFlags().Duration(key, replication.DefaultHealthTTL, cmdUtil.WrapString("How long a peer health verdict is cached"))

	key = "probe-timeout"
	ServeCmd.PersistentFlags().Duration(key, replication.DefaultProbeTimeout, cmdUtil.WrapString("Timeout of a single health probe"))

	key = "cache-size"
	ServeCmd.PersistentFlags().Int(key, cache.DefaultSize, cmdUtil.WrapString("Maximum number of cached entries, 0 disables the cache"))

	key = "cache-ttl"
	ServeCmd.PersistentFlags().Duration(key, cache.DefaultTTL, cmdUtil.WrapString("Lifetime of a cached entry"))

	key = "max-page-size"
	ServeCmd.PersistentFlags().Int(key, store.MaxPageSize, cmdUtil.WrapString("Maximum number of entries returned by a range read"))

	key = "max-batch-size"
	ServeCmd.PersistentFlags().Int(key, store.MaxBatchSize, cmdUtil.WrapString("Maximum number of items of a batch put"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	fanOut, err := replication.ParseFanOut(viper.GetString("fan-out"))
	if err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Engine = db.Implementation(strings.ToLower(viper.GetString("engine")))
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.NoSync = viper.GetBool("no-sync")
	serveCmdConfig.Peers = cmdUtil.SplitList(viper.GetString("peers"))
	serveCmdConfig.RetryAttempts = viper.GetInt("retry-attempts")
	serveCmdConfig.RetryDelay = viper.GetDuration("retry-delay")
	serveCmdConfig.PointTimeout = viper.GetDuration("point-timeout")
	serveCmdConfig.BatchTimeout = viper.GetDuration("batch-timeout")
	serveCmdConfig.FanOut = fanOut
	serveCmdConfig.StrictBatchRollback = viper.GetBool("strict-batch-rollback")
	serveCmdConfig.HealthTTL = viper.GetDuration("health-ttl")
	serveCmdConfig.ProbeTimeout = viper.GetDuration("probe-timeout")
	serveCmdConfig.CacheSize = viper.GetInt("cache-size")
	serveCmdConfig.CacheTTL = viper.GetDuration("cache-ttl")
	serveCmdConfig.MaxPageSize = viper.GetInt("max-page-size")
	serveCmdConfig.MaxBatchSize = viper.GetInt("max-batch-size")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := serveCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// run starts the rKV node and blocks until it is shut down
func run(cmd *cobra.Command, _ []string) error {
	serv, err := server.NewServer(*serveCmdConfig)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return serv.Serve(ctx)
}
