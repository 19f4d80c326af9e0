// Package config loads the dsctl configuration file and datasource manifests.
//
// # Configuration File
//
// The configuration file is YAML. It names the management endpoints dsctl can
// talk to and configures telemetry, the operation journal and admission
// policies:
//
//	default-server: dev
//	profiles: [full-ha]
//	servers:
//	  dev:
//	    host: 10.0.0.12
//	    port: 9990
//	    username: admin
//	    connect-timeout: 5s
//	journal:
//	  enabled: true
//	  path: /var/lib/dsctl/journal.db
//	  retention: 720h
//	policy:
//	  enabled: true
//	  paths: [/etc/dsctl/policies]
//
// DSCTL_HOST, DSCTL_PORT, DSCTL_USER and DSCTL_PASSWORD override the selected
// server. With no server configured DSCTL_HOST alone is enough.
//
// # Manifests
//
// A manifest declares datasources and their enabled state. YAML manifests
// list them:
//
//	profiles: [full, full-ha]
//	datasources:
//	  - jndi-name: java:/OrdersDS
//	    connection-url: jdbc:mysql://db:3306/orders
//	    driver-name: mysql
//	    user-name: orders
//	    enabled: true
//
// CUE manifests are checked against a closed schema and may also key
// datasources by name:
//
//	datasources: OrdersDS: {
//	    "jndi-name":      "java:/OrdersDS"
//	    "connection-url": "jdbc:mysql://db:3306/orders"
//	    "driver-name":    "mysql"
//	    "max-pool-size":  20
//	}
//
// Attributes left out keep the defaults of datasource.New.
// ManifestWatcher re-reads a manifest on change for dsctl apply --watch.
package config
