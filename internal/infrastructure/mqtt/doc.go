// Package mqtt is the uplink's optional side channel to an MQTT broker.
//
// One client serves one uplink target and owns three topics under
// logix/uplink/{target}:
//
//   - status: retained online/offline message naming site, target and
//     whether the uplink is active. The broker publishes the offline form
//     as the Last Will if the process dies.
//   - pass: retained JSON report of the most recent pass.
//   - command: operator commands; {"action":"run"} queues a manual pass.
//
// A broker outage never blocks a submission pass. Publish failures are
// returned to the caller, which logs and drops them.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Identity{
//	    Site:   cfg.Site.ID,
//	    Target: cfg.Uplink.Target,
//	    Active: cfg.Uplink.Active,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.OnCommand(func(cmd mqtt.Command) error {
//	    return scheduler.Trigger()
//	})
//
//	client.PublishPass(report)
//
// Enable TLS (cfg.Broker.TLS) when the broker is not on localhost: anyone
// able to publish on the command topic can start a pass.
package mqtt
