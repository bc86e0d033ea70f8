/*
Package ftp wraps a file transfer session behind a small, host-URI driven
client.

The client is configured with a host URI whose scheme selects the transport:

	ftp://example.com        plain FTP, port 21
	sftp://example.com:990   FTP over explicit TLS (ftps:// is an alias)
	ssh://example.com        SSH file transfer, port 22

Basic usage:

	client, err := ftp.New(ftp.Config{
		Host:     "sftp://ftp.example.com",
		User:     "deploy",
		Password: "secret",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := client.Connect(); err != nil {
		log.Fatal(err) // *ftp.ServerError on connect or login failure
	}
	defer client.Close()

	if err := client.Put("/var/www/index.html", "build/index.html"); err != nil {
		log.Fatal(err)
	}

Every protocol call goes through a Facade, a registry of named operations
(connect, ssl_connect, login, pasv, systype, chdir, pwd, get, put, rename,
delete, chmod, nlist, mkdir, rmdir, close). Operations can be replaced with
Facade.Register, and firing an unknown name returns a *RuntimeError.

The protocol itself is provided by a Driver. The default driver for the FTP
schemes speaks RFC 959 with explicit TLS (RFC 4217); ssh:// uses an SFTP
session. Tests and embedders can substitute their own with WithDriver, or
adopt an existing Session with WithSession.
*/
package ftp
