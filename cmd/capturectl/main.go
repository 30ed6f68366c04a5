package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "capturectl",
	Short: "Portrait capture pipeline CLI",
	Long:  `Run the portrait capture pipeline against local images or a remote capture worker.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./capturectl.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("capturectl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("CAPTURE")
	viper.AutomaticEnv()

	viper.SetDefault("tolerance", 60.0)
	viper.SetDefault("sharpen_amount", 0.3)
	viper.SetDefault("noise_threshold", 10.0)
	viper.SetDefault("smooth_radius", 1)

	_ = viper.ReadInConfig()

	if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
