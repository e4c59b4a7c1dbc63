// Package tele reports panel state and errors to an MQTT broker and
// accepts remote scripts. Network may be slow or absent, nothing here
// blocks the menu.
package tele

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/machkit/panel/helpers"
	"github.com/machkit/panel/log2"
)

type State byte

const (
	StateBoot State = iota + 1
	StateRunning
	StateIdle
	StateShutdown
)

// ScriptFunc receives scripts published to the panel's command topic.
type ScriptFunc func(script string)

type Tele struct {
	log      *log2.Log
	config   Config
	m        mqtt.Client
	onScript ScriptFunc

	topicConnect   string
	topicState     string
	topicError     string
	topicScriptOut string
	topicScript    string
}

// Init connects in the background. Fails only on invalid config.
func (self *Tele) Init(log *log2.Log, teleConfig Config, onScript ScriptFunc) error {
	self.log = log
	self.config = teleConfig
	self.onScript = onScript
	if !teleConfig.Enable {
		return nil
	}
	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele enabled with empty mqtt_broker")
	}

	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = log
	}

	clientId := fmt.Sprintf("panel%d", teleConfig.PanelId)
	credFun := func() (string, string) { return clientId, teleConfig.MqttPassword }
	self.topicConnect = fmt.Sprintf("%s/c", clientId)
	self.topicState = fmt.Sprintf("%s/w/state", clientId)
	self.topicError = fmt.Sprintf("%s/w/error", clientId)
	self.topicScriptOut = fmt.Sprintf("%s/w/script", clientId)
	self.topicScript = fmt.Sprintf("%s/r/script", clientId)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)
	netTimeout := helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, 30*time.Second)

	mopt := mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(self.topicConnect, []byte{0x00}, 1, true).
		SetCleanSession(false).
		SetClientID(clientId).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepAlive).
		SetPingTimeout(netTimeout).
		SetOrderMatters(false).
		SetResumeSubs(true).
		SetConnectRetryInterval(keepAlive / 2).
		SetOnConnectHandler(self.onConnect).
		SetConnectionLostHandler(self.onConnectLost).
		SetConnectRetry(true)
	if teleConfig.TlsCaFile != "" {
		cabytes, err := ioutil.ReadFile(teleConfig.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "tele tls_ca_file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cabytes) {
			return errors.NotValidf("tele tls_ca_file=%s no certificates", teleConfig.TlsCaFile)
		}
		mopt.SetTLSConfig(&tls.Config{RootCAs: pool})
	}
	self.m = mqtt.NewClient(mopt)
	if token := self.m.Connect(); token.Error() != nil {
		self.log.Errorf("tele connect err=%v", token.Error())
	}
	return nil
}

func (self *Tele) Close() {
	if self.m == nil {
		return
	}
	self.State(StateShutdown)
	if token := self.m.Unsubscribe(self.topicScript); token.Wait() && token.Error() != nil {
		self.log.Errorf("tele unsubscribe err=%v", token.Error())
	}
	self.m.Disconnect(uint(time.Second / time.Millisecond))
}

// State publishes the current panel state, retained, qos 1. Best
// effort: messages may be lost while offline.
func (self *Tele) State(s State) {
	if self.m == nil {
		return
	}
	self.m.Publish(self.topicState, 1, true, []byte{byte(s)})
}

// Script publishes a rendered menu script for the controller side,
// qos 1 so commands survive short disconnects.
func (self *Tele) Script(script string) error {
	if self.m == nil {
		return errors.NotValidf("tele disabled, script=%q", script)
	}
	self.m.Publish(self.topicScriptOut, 1, false, []byte(script))
	return nil
}

// Error publishes an error line. Intended as log2 error hook.
func (self *Tele) Error(e error) {
	if self.m == nil || e == nil {
		return
	}
	self.m.Publish(self.topicError, 1, false, []byte(e.Error()))
}

func (self *Tele) onConnect(c mqtt.Client) {
	self.log.Infof("tele connect")
	if token := c.Subscribe(self.topicScript, 1, self.onMessage); token.Wait() && token.Error() != nil {
		self.log.Errorf("tele subscribe err=%v", token.Error())
		return
	}
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}

func (self *Tele) onConnectLost(c mqtt.Client, err error) {
	self.log.Infof("tele disconnect err=%v", err)
}

func (self *Tele) onMessage(c mqtt.Client, msg mqtt.Message) {
	script := string(msg.Payload())
	self.log.Debugf("tele script=%q", script)
	if self.onScript != nil {
		self.onScript(script)
	}
}
