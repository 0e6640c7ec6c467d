package elm327_test

import (
	"context"
	"fmt"
	"time"

	"github.com/Station-Manager/elm327"
)

func Example() {
	port, err := elm327.Open(elm327.DefaultConfig("/dev/rfcomm0"), elm327.NopLogger())
	if err != nil {
		fmt.Println("open error:", err)
		return
	}
	defer port.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, cmd := range []string{"AT E0", "AT L0", "AT SP 0"} {
		resp, err := port.Exec(ctx, cmd)
		if err != nil {
			fmt.Println("exec error:", err)
			return
		}
		fmt.Printf("%s -> %s\n", cmd, resp)
	}
}
