package main

import (
	"context"

	"github.com/trezcool/beerxchange/core"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	if err := checkPassword(pwd); err != nil {
		return err
	}
	return cli.usrSvc.ResetPassword(context.Background(), core.CleanString(uname, true /* lower */), pwd)
}
