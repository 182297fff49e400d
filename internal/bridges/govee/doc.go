// Package govee implements the Govee cloud to Home Assistant bridge.
//
// The bridge polls the Govee developer API for devices and their state,
// publishes Home Assistant MQTT discovery for each supported device, and
// turns Home Assistant commands into vendor capability commands.
//
// # Architecture
//
//	┌─────────────────┐  HTTPS  ┌─────────────────┐   MQTT   ┌─────────────────┐
//	│   Govee cloud   │◄───────►│  Govee Bridge   │◄────────►│ Home Assistant  │
//	│       API       │         │   (this pkg)    │          │                 │
//	└─────────────────┘         └─────────────────┘          └─────────────────┘
//
// # Components
//
//   - Classify and EntityID map a vendor device to an entity kind and id
//   - Builder produces discovery definitions and seeded state
//   - EncodeCommands and DecodeCapabilities convert between MQTT attributes
//     and vendor capabilities
//   - TranslateDevice and TranslateMode apply command policy
//   - Renderer and Publisher turn store records into MQTT messages
//   - Bridge owns the refresh loops and the command path
//
// # Refresh loops
//
// Four loops run under one errgroup:
//
//   - device list: rebuilds every device and marks missing ones offline;
//     its first successful pass ends with a full rediscovery
//   - device: refreshes every entity that is not boosted
//   - boost: refreshes entities that sent a command without getting state
//   - heartbeat: touches the ready file and publishes service statistics
//
// The device and boost loops wait until the initial discovery completes.
// A panic in any loop stops all of them and is delivered on Bridge.Err.
//
// # Discovery gating
//
// Nothing but discovery is published for an entity until its discovery
// payload has been sent once.
package govee
