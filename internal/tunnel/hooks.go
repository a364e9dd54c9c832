package tunnel

import (
	"bytes"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"wgquickrs/internal/wgmodel"
)

// hookEnv is the set of runtime variables injected into a hook script's
// environment ("PORT" for http/https; "WG_SUBNET", "WG_PORT",
// "WG_INTERFACE" for vpn).
type hookEnv map[string]string

// runHooks executes each enabled script in list order via a shell,
// since the operator-supplied script body is shell syntax. A failing
// script logs a warning but never aborts the surrounding phase.
func runHooks(scripts []wgmodel.Script, env hookEnv) {
	for _, s := range scripts {
		if !s.Enabled {
			continue
		}
		if err := runOne(s.Script, env); err != nil {
			log.Printf("tunnel: hook script failed: %v", err)
		}
	}
}

func runOne(script string, env hookEnv) error {
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		log.Printf("tunnel: hook stdout: %s", out)
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		log.Printf("tunnel: hook stderr: %s", errOut)
	}
	return err
}

// RunWebHooks lets the Server Orchestrator invoke http/https pre_up
// (before binding) and post_down (after unbinding) hooks, which are not
// part of the VPN start/stop sequence owned by Manager.
func RunWebHooks(bundle wgmodel.ScriptBundle, phase string, port int) {
	env := hookEnv{"PORT": strconv.Itoa(port)}
	switch phase {
	case "pre_up":
		runHooks(bundle.PreUp, env)
	case "post_down":
		runHooks(bundle.PostDown, env)
	}
}
