package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conveyorproject/conveyor/internal/common"
	"github.com/conveyorproject/conveyor/internal/common/app"
	"github.com/conveyorproject/conveyor/internal/producer"
	"github.com/conveyorproject/conveyor/internal/producer/configuration"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.StringSlice(CustomConfigLocation, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.ProducerConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/producer", userSpecifiedConfigs)

	ctx := app.CreateContextWithShutdown()
	if err := producer.Run(ctx, &config); err != nil {
		log.Fatalf("Producer failed: %s", err)
	}
}
