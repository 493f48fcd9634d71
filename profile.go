package bridge

import (
	"net/http"
	_ "net/http/pprof"
	"strconv"
)

// StartProfile starts the pprof profiling HTTP server on profilePort.
// net/http/pprof registers its handlers on DefaultServeMux as a side
// effect of being imported, so this just needs to serve it.
func StartProfile(profilePort int) {
	go func() {
		addr := ":" + strconv.Itoa(profilePort)
		log.Infoln("starting pprof server at http://localhost" + addr + "/debug/pprof/")
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Errorln("pprof server stopped:", err)
		}
	}()
}
