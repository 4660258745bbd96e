package checkpointsync

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "checkpointsync")
