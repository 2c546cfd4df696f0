/*
 * Copyright (c) 2021 THL A29 Limited, a Tencent company.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 *
 * You may obtain a copy of the License at http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package app

import (
	"os"

	"github.com/tencent/driftwatch/pkg/driftwatch/alarm"
	"github.com/tencent/driftwatch/pkg/driftwatch/pipeline"
	"github.com/tencent/driftwatch/pkg/driftwatch/types"
	"github.com/tencent/driftwatch/pkg/driftwatch/util"
	common "github.com/tencent/driftwatch/pkg/util"
	"github.com/tencent/driftwatch/pkg/version/verflag"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// options show the supported flags
type options struct {
	HostnameOverride string
	Config           string

	// flags related to server
	ApiOption ApiOption
}

// this describe the common module functions
type module interface {
	// Run describe how the module works, this should be started asynchronously
	Run(stop <-chan struct{})
	// Name return module name
	Name() string
}

// printFlags show all flags
func printFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		klog.V(1).Infof("FLAG: --%s=%q", flag.Name, flag.Value)
	})
}

// NewServerCommand initialize server execution context
func NewServerCommand() *cobra.Command {
	opts := newOptions()

	cmd := &cobra.Command{
		Use: "driftwatch",
		Run: func(cmd *cobra.Command, args []string) {
			verflag.PrintAndExitIfRequested()
			printFlags(cmd.Flags())

			if err := opts.Run(); err != nil {
				klog.Exitf("can't run command, %v", err)
			}
		},
	}

	opts.AddFlags(cmd.Flags())

	return cmd
}

// newOptions return the options instance
func newOptions() *options {
	return &options{}
}

// AddFlags describe server flags
func (o *options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.HostnameOverride, "hostname-override", o.HostnameOverride,
		"If non-empty, will use this string as identification instead of the actual hostname.")
	fs.StringVar(&o.Config, "config", "/etc/sysconfig/driftwatch.json", "The Config file")

	// flags related to API
	o.ApiOption.AddFlags(fs)
}

// Run starts the main loop
func (o *options) Run() error {
	// get node name
	nodeName := o.HostnameOverride
	if len(nodeName) == 0 {
		hostName, err := os.Hostname()
		if err != nil {
			return err
		}
		nodeName = hostName
	}
	util.SetNodeName(nodeName)

	// get node ip
	nodeIP := o.ApiOption.InsecureAddress
	if util.MatchIP(nodeName) {
		nodeIP = nodeName
	}
	util.SetNodeIP(nodeIP)

	// parse config file
	config, err := types.ParseJsonConfig(o.Config)
	if err != nil {
		return err
	}

	signalCh := common.SetupSignalHandler()

	// initialize API related context
	if err := o.ApiOption.Init(); err != nil {
		return err
	}

	modules, err := o.initModules(config)
	if err != nil {
		return err
	}
	// start all modules
	for _, module := range modules {
		klog.V(2).Infof("%s starting", module.Name())
		module.Run(signalCh)
		klog.V(2).Infof("%s started", module.Name())
	}
	// start http server
	if err := o.ApiOption.RegisterServer(); err != nil {
		return err
	}

	klog.Infof("driftwatch starting success")
	<-signalCh
	return nil
}

// initModules initialize all manager client
func (o *options) initModules(config *types.DriftwatchConfig) ([]module, error) {
	var modules []module

	// alarm manager
	if config.Alarm.Enable {
		alarmManager := alarm.NewManager(&config.Alarm)
		modules = append(modules, alarmManager)
	}

	// pipeline manager
	pipelineManager, err := pipeline.NewManager(config)
	if err != nil {
		return nil, err
	}
	modules = append(modules, pipelineManager)
	o.ApiOption.loadStatus(pipelineManager)

	return modules, nil
}
