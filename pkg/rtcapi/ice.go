package rtcapi

import (
	"os"

	"github.com/pion/webrtc/v4"
)

// Environment variables read by the ICE configurations.
const (
	EnvSTUNURL      = "STUN_SERVER_URL"
	EnvTURNUDPURL   = "TURN_UDP_SERVER_URL"
	EnvTURNTCPURL   = "TURN_TCP_SERVER_URL"
	EnvTURNTLSURL   = "TURN_TLS_SERVER_URL"
	EnvTURNUsername = "TURN_SERVER_USERNAME"
	EnvTURNPassword = "TURN_SERVER_PASSWORD"
)

// STUNOnlyConfiguration uses the STUN server from the environment, or no ICE
// server at all when it is unset.
func STUNOnlyConfiguration() webrtc.Configuration {
	config := webrtc.Configuration{}
	if url := os.Getenv(EnvSTUNURL); url != "" {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{URLs: []string{url}})
	}
	return config
}

// FullConfiguration adds every TURN server set in the environment to
// STUNOnlyConfiguration. All of them share one set of credentials.
func FullConfiguration() webrtc.Configuration {
	config := STUNOnlyConfiguration()
	username := os.Getenv(EnvTURNUsername)
	password := os.Getenv(EnvTURNPassword)

	for _, env := range []string{EnvTURNUDPURL, EnvTURNTCPURL, EnvTURNTLSURL} {
		url := os.Getenv(env)
		if url == "" {
			continue
		}
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{
			URLs:           []string{url},
			Username:       username,
			Credential:     password,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return config
}
