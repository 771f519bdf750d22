// cmd/logpeek reads nrsc5 log output on stdin and prints the typed field
// updates the classifier extracts from it. Useful for checking what a given
// broadcast actually carries.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/edward-ap/boombox/internal/nrsc5"
)

func main() {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		for _, u := range nrsc5.Classify(sc.Text()) {
			switch v := u.(type) {
			case nrsc5.Title:
				fmt.Printf("title     %s\n", string(v))
			case nrsc5.Artist:
				fmt.Printf("artist    %s\n", string(v))
			case nrsc5.Album:
				fmt.Printf("album     %s\n", string(v))
			case nrsc5.StationName:
				fmt.Printf("station   %s\n", string(v))
			case nrsc5.Slogan:
				fmt.Printf("slogan    %s\n", string(v))
			case nrsc5.Genre:
				fmt.Printf("genre     %s\n", string(v))
			case nrsc5.Message:
				fmt.Printf("message   %s\n", string(v))
			case nrsc5.BitrateKbps:
				fmt.Printf("bitrate   %.1f kbps\n", float64(v))
			case nrsc5.LotFileAnnounced:
				kind := nrsc5.ClassifyAsset(v.Name, v.Port, 0)
				fmt.Printf("lot-file  %s port=%s kind=%s\n", v.Name, v.Port, kind)
			}
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}
}
