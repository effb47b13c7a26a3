package main

import (
	"context"
	"fmt"
)

// addUser creates an admin, or gives an existing user the admin role and a new password.
func (cli *commandLine) addUser(uname, pwd string, superuser bool) error {
	if err := checkPassword(pwd); err != nil {
		return err
	}
	usr, err := cli.usrSvc.SaveAdmin(context.Background(), uname, pwd, superuser)
	if err != nil {
		return err
	}
	fmt.Printf("saved admin %q (%v)\n", usr.Username, usr.Roles)
	return nil
}
