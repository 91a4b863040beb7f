// Package config loads relayd's optional YAML config file and merges it
// under CLI flag values: flags always win, the file only fills in
// fields a flag didn't set. The struct tags follow the convention
// nabbar/golib's logger/config package uses for its own YAML-backed
// settings.
package config
