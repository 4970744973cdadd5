package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"lockkv/pkg/parser"
	"lockkv/pkg/protos"
)

var opts struct {
	Host string `value-name:"host" short:"h" long:"host" default:"localhost" description:"lockkv server host"`
	Port string `value-name:"port" short:"p" long:"port" default:"8081" description:"lockkv server port"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		panic(err)
	}

	if err := Interact(opts.Host, opts.Port); err != nil {
		panic(err)
	}
}

func Interact(hostname string, port string) error {
	addr := fmt.Sprintf("%s:%s", hostname, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	reader := bufio.NewReader(os.Stdin)
	p := parser.NewParser()
	for {
		fmt.Printf("[%s] > ", addr)
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		req, err := p.Parse(line)
		if err != nil {
			fmt.Println(err)
			continue
		}

		if err := req.Send(conn); err != nil {
			fmt.Printf("failed to send command: req=%v, err=%v\n", req, err)
			continue
		}

		resp, err := protos.ParseCommand(conn)
		if err != nil {
			fmt.Printf("failed to parse response: req=%v, err=%v\n", req, err)
			continue
		}

		if resp.Type == protos.String && len(resp.Payload) > 0 {
			fmt.Println(resp.Payload[0])
		}
	}
}
