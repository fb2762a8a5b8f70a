// Package config loads the description of an MTS process from JSON or YAML
// files.
//
// A configuration names the process, tunes the component manager, sets up
// NATS, lists the component instances to create through the class register,
// the connections between their interfaces, and the interfaces exported to or
// imported from other processes.
//
// # Loading
//
// Files are layered on top of Default(): maps merge key by key, lists are
// replaced. The merged document is checked against the embedded JSON schema,
// decoded, then environment overrides are applied and the semantic checks run.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/site.json")
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// # Environment overrides
//
//	MTS_PROCESS_NAME           process.name
//	MTS_NATS_ENABLED           nats.enabled
//	MTS_NATS_URLS              nats.urls (comma separated)
//	MTS_NATS_SUBJECT_PREFIX    nats.subject_prefix
//	MTS_NATS_USERNAME          nats.username
//	MTS_NATS_PASSWORD          nats.password
//	MTS_NATS_TOKEN             nats.token
//	MTS_HTTP_ADDR              http.addr
//	MTS_MANAGER_MAILBOX_SIZE   manager.mailbox_size
//	MTS_MANAGER_SHUTDOWN_TIMEOUT manager.shutdown_timeout
//
// # Example
//
//	process:
//	  name: lab
//	components:
//	  - name: wave
//	    type: sine
//	    config: {period: 10ms, amplitude: 2}
//	  - name: log
//	    type: collector
//	    config: {path: /var/lib/mts/wave.jsonl}
//	connections:
//	  - client_component: log
//	    client_interface: Source
//	    server_component: wave
//	    server_interface: Main
//
// Files must end in .json, .yaml or .yml, stay under 10MB, and relative paths
// may not leave the working directory.
package config
