package node

import (
	"fmt"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/kma-coin/kmacoin/log"
)

// mapDuration is how long a NAT port mapping is requested for. A NAT-PMP
// mapping is renewed at half that interval so a flaky gateway doesn't
// drop it mid-lease; a UPnP mapping is requested once and not renewed.
const mapDuration = 20 * time.Minute

// MapPort attempts best-effort UPnP, then NAT-PMP, port forwarding for
// port, logging and giving up quietly on failure — a node without a
// mapped port still works, it's just harder for peers behind their own
// NAT to find it via this node's advertised address.
func MapPort(port int) {
	if mapUPnP(port) {
		return
	}
	if mapNATPMP(port) {
		return
	}
	log.Warn("no NAT mapping available, relying on manual port forwarding or a public IP", "port", port)
}

func mapUPnP(port int) bool {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		log.Debug("no upnp internet gateway found", "port", port)
		return false
	}
	local, err := localIP()
	if err != nil {
		log.Debug("could not determine local address for upnp mapping", "err", err.Error())
		return false
	}
	client := clients[0]
	err = client.AddPortMapping("", uint16(port), "TCP", uint16(port), local.String(), true, "kmacoinnode", uint32(mapDuration.Seconds()))
	if err != nil {
		log.Debug("upnp mapping failed", "err", err.Error())
		return false
	}
	log.Info("upnp mapped port", "port", port)
	return true
}

func localIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

func mapNATPMP(port int) bool {
	gw, err := defaultGateway()
	if err != nil {
		log.Debug("could not determine default gateway for nat-pmp", "err", err.Error())
		return false
	}
	client := natpmp.NewClient(gw)
	res, err := client.AddPortMapping("tcp", port, port, int(mapDuration.Seconds()))
	if err != nil {
		log.Debug("nat-pmp mapping failed", "err", err.Error())
		return false
	}
	log.Info("nat-pmp mapped port", "internal", port, "external", res.MappedExternalPort)
	go renewNATPMP(client, "tcp", port, port)
	return true
}

func renewNATPMP(client *natpmp.Client, protocol string, internal, external int) {
	ticker := time.NewTicker(mapDuration / 2)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := client.AddPortMapping(protocol, internal, external, int(mapDuration.Seconds())); err != nil {
			log.Warn("nat-pmp mapping renewal failed", "err", err.Error())
			return
		}
	}
}

// defaultGateway guesses the LAN gateway by taking the first non-loopback
// IPv4 interface's network address with its last octet set to 1, a
// common-enough convention for home routers that avoids a heavier
// dependency purely to read the OS routing table.
func defaultGateway() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		gw := make(net.IP, 4)
		copy(gw, ip4)
		gw[3] = 1
		return gw, nil
	}
	return nil, fmt.Errorf("node: no suitable network interface found")
}
