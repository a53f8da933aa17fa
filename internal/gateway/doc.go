// Package gateway is the device session and message-routing core.
//
// Every device holds one WebSocket connection to the gateway. The
// connection starts UNIDENTIFIED; the first identification frame carrying
// a MAC address derives a stable device ID, moves the session to
// IDENTIFIED and registers it. From then on frames are dispatched by type:
//
//	identification  re-populate identity, ack
//	heartbeat       refresh last heartbeat and uptime, no reply
//	status          store status, broadcast device_status to the others
//	sensor_data     persist reading, broadcast sensor_data to the others
//	response        broadcast device_response to the others
//	led_update      persist LED config, reply led_update_ack or error
//	pong            refresh last heartbeat
//
// # Architecture
//
//	 WebSocket ──▶ readPump ──▶ Dispatch ──▶ Session state
//	                              │  │
//	                              │  └──▶ work queue ──▶ Store / MQTT / InfluxDB / audit
//	                              ▼
//	                       Registry ──▶ Router ──▶ writePump ──▶ WebSocket
//	                          ▲
//	 Liveness monitor ────────┘ (mark, ping, evict)
//
// # Concurrency
//
// The Registry and every Session carry their own lock; no lock is held
// while another is taken. Broadcasts snapshot the registry and enqueue
// frames on each session's bounded send buffer, so one slow device never
// delays the rest: a full buffer drops the frame for that recipient only.
//
// Persistence and event publishing run on a per-session work queue so a
// device's writes stay ordered without blocking its read loop. Only
// led_update waits for its write, because the reply depends on it.
//
// # Usage
//
//	gw := gateway.New(gateway.Deps{
//	    Config: cfg.WebSocket,
//	    Store:  deviceRepo,
//	    Logger: log.Component("gateway"),
//	})
//	go gw.RunMonitor(ctx)
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//	    conn, _ := upgrader.Upgrade(w, r, nil)
//	    gw.ServeConn(conn, r.RemoteAddr)
//	})
//
//	err := gw.SendToOne("dev-1a2b3c4d5e6f7a8b", gateway.Command("reboot", nil))
package gateway
