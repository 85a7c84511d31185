package util

import (
	"os"
	"strings"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of all environment variables read by the cli.
const EnvPrefix = "rkv"

// WrapString splits long text into multiple lines with a maximum line length
func WrapString(text string) string {
	const Wrap = 50
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	currentLine := words[0]

	for _, word := range words[1:] {
		if len(currentLine)+len(word)+1 > Wrap {
			lines = append(lines, currentLine)
			currentLine = word
		} else {
			currentLine += " " + word
		}
	}

	lines = append(lines, currentLine)
	return strings.Join(lines, "\n")
}

// SplitList splits a comma separated flag value and drops empty elements.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimSuffix(part, "/"))
		}
	}
	return out
}

// InitEnv loads .env files and makes viper read RKV_ prefixed environment variables.
func InitEnv() {
	// load .env files if present, missing files are not an error
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupClientFlags adds the flags needed to connect to rKV nodes
func SetupClientFlags(cmd *cobra.Command) {
	key := "endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8000", WrapString("Comma separated base urls of the rKV nodes to connect to"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("Request timeout in seconds"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("Number of endpoints to try before a request fails"))
}

// InitClientConfig initializes viper for the client commands
func InitClientConfig() {
	InitEnv()
}

// GetClientConfig creates a client config from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Endpoints:     SplitList(viper.GetString("endpoints")),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
	}
}

// BindCommandFlags binds the flags of a command and all its parents to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.PersistentFlags())
}
