package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devlink/internal/config"
	"github.com/nextlevelbuilder/devlink/internal/gateway"
	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

var clientToken string

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and manage devices through a running relay",
	}
	cmd.PersistentFlags().StringVar(&clientToken, "token", "", "bearer token (default $DEVLINK_TOKEN)")

	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesRemoveCmd())
	cmd.AddCommand(devicesWatchCmd())
	return cmd
}

func devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your devices with live presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Devices []gateway.DeviceView `json:"devices"`
			}
			if err := relayHTTP(http.MethodGet, "/api/devices", &body); err != nil {
				return err
			}
			if len(body.Devices) == 0 {
				fmt.Println("No devices.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPLATFORM\tONLINE\tLAST SEEN")
			for _, d := range body.Devices {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
					d.ID, d.Name, d.Type, d.Platform, d.Online, d.LastSeen.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func devicesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <deviceId>",
		Short: "Delete a device and all of its pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := relayHTTP(http.MethodDelete, "/api/devices/"+url.PathEscape(args[0]), nil); err != nil {
				return err
			}
			fmt.Printf("Device %s removed.\n", args[0])
			return nil
		},
	}
}

func devicesWatchCmd() *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect as a device and print every frame the relay sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRelay(deviceID)
		},
	}
	cmd.Flags().StringVar(&deviceID, "device-id", "", "device id to authenticate as (default: assigned by the relay)")
	return cmd
}

func resolveToken() (string, error) {
	if clientToken != "" {
		return clientToken, nil
	}
	if v := os.Getenv("DEVLINK_TOKEN"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no token: pass --token or set DEVLINK_TOKEN (mint one with 'devlink token')")
}

// relayHostPort returns the address a local client should dial.
func relayHostPort() (string, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	host := cfg.Gateway.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, cfg.Gateway.Port), nil
}

// relayHTTP calls the REST API and decodes a JSON response into out.
func relayHTTP(method, path string, out any) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}
	hostPort, err := relayHostPort()
	if err != nil {
		return err
	}

	u := url.URL{Scheme: "http", Host: hostPort, Path: path}
	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to relay at %s: %w", hostPort, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("relay: %s (%d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("relay: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// watchRelay authenticates over WebSocket and prints frames until the
// connection closes.
func watchRelay(deviceID string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}
	hostPort, err := relayHostPort()
	if err != nil {
		return err
	}

	u := url.URL{Scheme: "ws", Host: hostPort, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to relay at %s: %w", u.String(), err)
	}
	defer conn.Close()

	hostname, _ := os.Hostname()
	if err := conn.WriteJSON(watchAuthFrame(token, deviceID, hostname)); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	// Ask for the current device list once authenticated.
	listSent := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fmt.Println(string(data))

		typ, _ := protocol.ParseType(data)
		if typ == protocol.TypeAuthSuccess && !listSent {
			listSent = true
			if err := conn.WriteJSON(map[string]any{"type": protocol.TypeDeviceList}); err != nil {
				return err
			}
		}
	}
}

// watchAuthFrame builds the auth message for `devices watch`. Without an
// explicit device id the relay assigns a fresh one.
func watchAuthFrame(token, deviceID, hostname string) map[string]any {
	f := map[string]any{
		"type":       protocol.TypeAuth,
		"token":      token,
		"deviceName": "devlink cli on " + hostname,
		"deviceType": "cli",
	}
	if deviceID != "" {
		f["deviceId"] = deviceID
	}
	return f
}
