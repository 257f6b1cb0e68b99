// Package mocks holds gomock doubles for the interfaces that cross package boundaries.
package mocks

//go:generate mockgen -source ../pkg/connector/connector.go -destination connector.go -package mocks -mock_names Scanner=ConnectorScanner,Dialer=ConnectorDialer,Link=ConnectorLink
//go:generate mockgen -source ../pkg/environment/environment.go -destination environment.go -package mocks -mock_names Environment=Environment
//go:generate mockgen -source ../pkg/store/store.go -destination store.go -package mocks -mock_names Store=Store
